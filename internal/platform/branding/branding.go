// Package branding holds the product name shown when a site has not
// configured its own.
package branding

// AppName is the default site name.
const AppName = "pagesnap"
