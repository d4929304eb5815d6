// Пакет generated — chi-сервер и модели, сгенерированные oapi-codegen
// из api/openapi.yaml. Файл server.gen.go не редактируется вручную.
package generated

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen --config=../../../api/oapi-codegen.yaml ../../../api/openapi.yaml
