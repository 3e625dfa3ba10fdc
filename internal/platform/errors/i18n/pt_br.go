package i18n

var ptBR = map[Code]string{
	CodeUnknown:          "Algo deu errado.",
	CodeInvalidRequest:   "A solicitação de snapshot é inválida: {{.reason}}.",
	CodeUnresolvedEntity: "{{if .id}}A página {{.id}} não foi encontrada.{{else}}O conteúdo solicitado não pôde ser carregado.{{end}}",
	CodeNotFound:         "Não encontrado.",
	CodeRecursiveRender:  "A página {{.id}} renderiza a si mesma e foi ignorada.",
	CodeRenderEngine:     "A página {{.id}} falhou ao renderizar.",
	CodeAssetSync:        "Os arquivos de {{.category}} não puderam ser copiados.",
	CodeFilesystem:       "{{if .id}}A página {{.id}} não pôde ser gravada em disco.{{else}}O diretório {{.directory}} não pôde ser preparado.{{end}}",
}
