package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-orchestrator/internal/handler"
	"github.com/angeloszaimis/ai-orchestrator/internal/orchestrator"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
	"github.com/angeloszaimis/ai-orchestrator/pkg/logger"
)

type processorFunc func(ctx context.Context, req *request.Request) (*request.Response, error)

func (f processorFunc) Process(ctx context.Context, req *request.Request) (*request.Response, error) {
	return f(ctx, req)
}

const validBody = `{
	"capability": "story",
	"content_class": "story",
	"topic": "Dragons",
	"age_bracket": "6-8",
	"locale": "en_US",
	"features": ["tts"],
	"payload": {"prompt": "tell me about dragons"},
	"deadline_ms": 5000
}`

var _ = Describe("GenerateHandler", func() {
	var (
		seen *request.Request
		resp *request.Response
		err  error
		h    *handler.GenerateHandler
	)

	BeforeEach(func() {
		seen, resp, err = nil, nil, nil
		h = handler.NewGenerateHandler(logger.Discard(), processorFunc(func(_ context.Context, req *request.Request) (*request.Response, error) {
			seen = req
			if resp != nil {
				resp.Fingerprint = req.Fingerprint
			}
			return resp, err
		}))
	})

	serve := func(method, body string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/v1/generate", strings.NewReader(body))
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	It("should hand a normalized request to the orchestrator", func() {
		resp = &request.Response{Payload: []byte("Once upon a time"), Source: request.SourceLive, BackendID: "gpt"}

		rec := serve(http.MethodPost, validBody)
		Expect(rec.Code).To(Equal(http.StatusOK))

		Expect(seen).NotTo(BeNil())
		Expect(seen.Topic).To(Equal("dragons"))
		Expect(seen.Locale).To(Equal("en-us"))
		Expect(seen.Fingerprint).To(HaveLen(16))
		Expect(string(seen.Payload)).To(MatchJSON(`{"prompt":"tell me about dragons"}`))
		Expect(seen.Deadline).To(BeTemporally("~", time.Now().Add(5*time.Second), time.Second))

		var body handler.GenerateResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Source).To(Equal(request.SourceLive))
		Expect(body.BackendID).To(Equal("gpt"))
		Expect(body.Fingerprint).To(Equal(seen.Fingerprint))
		Expect(string(body.Payload)).To(Equal(`"Once upon a time"`))
		Expect(rec.Header().Get("X-Source")).To(Equal("LIVE"))
		Expect(rec.Header().Get("X-Backend-Server")).To(Equal("gpt"))
	})

	It("should pass JSON payloads through", func() {
		resp = &request.Response{Payload: []byte(`{"text":"hi"}`), Source: request.SourceCache}

		rec := serve(http.MethodPost, validBody)
		var body map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["payload"]).To(HaveKeyWithValue("text", "hi"))
		Expect(body).NotTo(HaveKey("backend_id"))
	})

	It("should flag degraded responses", func() {
		resp = &request.Response{Payload: []byte("placeholder"), Source: request.SourceFallbackStatic, Degraded: true}

		rec := serve(http.MethodPost, validBody)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"degraded":true`))
	})

	It("should generate a request id when none is given", func() {
		resp = &request.Response{Source: request.SourceCache}
		rec := serve(http.MethodPost, validBody)
		Expect(rec.Header().Get("X-Request-ID")).To(MatchRegexp(`^[0-9a-f-]{36}$`))
	})

	It("should echo the caller's request id", func() {
		resp = &request.Response{Source: request.SourceCache}
		rec := serve(http.MethodPost, validBody, "X-Request-ID", "abc-123")
		Expect(rec.Header().Get("X-Request-ID")).To(Equal("abc-123"))
	})

	DescribeTable("rejecting bad requests",
		func(method, body string, status int) {
			rec := serve(method, body)
			Expect(rec.Code).To(Equal(status))
			Expect(seen).To(BeNil())

			var e map[string]string
			Expect(json.Unmarshal(rec.Body.Bytes(), &e)).To(Succeed())
			Expect(e["error"]).NotTo(BeEmpty())
			Expect(e["request_id"]).NotTo(BeEmpty())
		},
		Entry("wrong method", http.MethodGet, "", http.StatusMethodNotAllowed),
		Entry("malformed JSON", http.MethodPost, "{", http.StatusBadRequest),
		Entry("unknown field", http.MethodPost, `{"capability":"story","topic":"x","locale":"en","colour":"red"}`, http.StatusBadRequest),
		Entry("missing topic", http.MethodPost, `{"capability":"story","locale":"en"}`, http.StatusBadRequest),
		Entry("bad locale", http.MethodPost, `{"capability":"story","topic":"x","locale":"english!"}`, http.StatusBadRequest),
	)

	DescribeTable("mapping orchestrator errors",
		func(procErr error, status int) {
			err = procErr
			rec := serve(http.MethodPost, validBody)
			Expect(rec.Code).To(Equal(status))
		},
		Entry("unavailable", fmt.Errorf("%w: fingerprint x", orchestrator.ErrUnavailable), http.StatusServiceUnavailable),
		Entry("validation", &request.ValidationError{Err: fmt.Errorf("fingerprint: cannot be blank")}, http.StatusBadRequest),
		Entry("cancelled", context.Canceled, http.StatusGatewayTimeout),
		Entry("anything else", fmt.Errorf("boom"), http.StatusInternalServerError),
	)
})
