package server

import (
	"net/http"
	"reflect"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/ericbottard/streaming-function-invoker/codec"
	"github.com/ericbottard/streaming-function-invoker/internal/logx"
	"github.com/ericbottard/streaming-function-invoker/invoker"
)

// OpenAPI describes the HTTP surface for the served function.
func OpenAPI(fn invoker.Function, codecs *codec.Registry, version string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	text := func(desc string) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription(desc).
			WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/plain"}))}
	}
	jsonBody := func(desc string) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription(desc).
			WithJSONSchema(openapi3.NewObjectSchema())}
	}

	paths := openapi3.NewPaths(
		openapi3.WithPath("/healthz", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "healthz",
			Summary:     "Liveness probe",
			Responses:   openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, text("alive"))),
		}}),
		openapi3.WithPath("/readyz", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "readyz",
			Summary:     "Readiness probe",
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(http.StatusOK, text("ready")),
				openapi3.WithStatus(http.StatusServiceUnavailable, text("not ready or draining")),
			),
		}}),
		openapi3.WithPath("/api/state", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "state",
			Summary:     "Invoker state, contract and process statistics",
			Responses:   openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, jsonBody("state report"))),
		}}),
		openapi3.WithPath("/invoke", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "invoke",
			Summary:     "Streaming invocation over a WebSocket",
			Description: "One JSON frame per text message: a start frame, then data frames. An empty text message ends the caller's input.",
			Responses:   openapi3.NewResponses(openapi3.WithStatus(http.StatusSwitchingProtocols, text("upgraded"))),
		}}),
	)

	if n, m := fn.Contract.Arity(); n == 1 && m >= 1 {
		in, out := fn.Contract.InputType(0), fn.Contract.OutputType(0)
		op := &openapi3.Operation{
			OperationID: "call",
			Summary:     "Invoke " + fn.Name + " with a single value",
			RequestBody: &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithContent(openapi3.NewContentWithSchema(schemaFor(in), codecs.AcceptHeader(in)))},
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{Value: openapi3.NewResponse().
					WithDescription("first result value").
					WithContent(openapi3.NewContentWithSchema(schemaFor(out), encodable(codecs, out)))}),
				openapi3.WithStatus(http.StatusNoContent, &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("the result completed empty")}),
				openapi3.WithStatus(http.StatusUnsupportedMediaType, text("no codec reads the request content type")),
				openapi3.WithStatus(http.StatusNotAcceptable, text("no codec writes an accepted content type")),
				openapi3.WithStatus(http.StatusInternalServerError, text("function failed")),
			),
		}
		paths.Set("/", &openapi3.PathItem{Post: op})
	}

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "riff invoker: " + fn.Name,
			Description: "Streaming function invoker",
			Version:     version,
		},
		Paths: paths,
	}
}

// encodable lists the concrete content types a value of t can be written as.
func encodable(codecs *codec.Registry, t reflect.Type) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range codecs.Codecs() {
		for _, mt := range c.ContentTypes() {
			if codec.Specificity(mt) < 2 || seen[mt] || !c.CanEncode(t, mt) {
				continue
			}
			seen[mt] = true
			out = append(out, mt)
		}
	}
	return out
}

func schemaFor(t reflect.Type) *openapi3.Schema {
	switch t.Kind() {
	case reflect.String:
		return openapi3.NewStringSchema()
	case reflect.Bool:
		return openapi3.NewBoolSchema()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return openapi3.NewIntegerSchema()
	case reflect.Float32, reflect.Float64:
		return openapi3.NewFloat64Schema()
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return openapi3.NewBytesSchema()
		}
		return openapi3.NewArraySchema().WithItems(schemaFor(t.Elem()))
	case reflect.Map, reflect.Struct, reflect.Pointer:
		return openapi3.NewObjectSchema()
	default:
		return openapi3.NewSchema()
	}
}

func openAPIHandler(d Deps) http.HandlerFunc {
	doc := OpenAPI(d.Invoker.Function(), d.Codecs, d.Version)
	body, err := doc.MarshalJSON()
	if err != nil {
		logx.Log.Error().Err(err).Msg("openapi document")
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}
