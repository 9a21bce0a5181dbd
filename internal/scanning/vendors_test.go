package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/googleapi"
)

// captureJSON records the decoded request body for later assertions
func captureJSON(into *map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, into)).To(Succeed())
	}
}

var _ = Describe("Claude", func() {
	var (
		server  *ghttp.Server
		claude  *Claude
		image   []byte
		request map[string]any
		text    string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		claude = NewClaude(server.URL(), "")
		image = []byte("png bytes")
		request = nil
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = claude.Recognize(context.Background(), image, "claude-key")
	})

	When("the API answers successfully", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/messages"),
				ghttp.VerifyHeaderKV("x-api-key", "claude-key"),
				ghttp.VerifyHeaderKV("anthropic-version", "2023-06-01"),
				ghttp.VerifyContentType("application/json"),
				captureJSON(&request),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"content": []map[string]any{
						{"type": "text", "text": "first"},
						{"type": "tool_use", "text": "ignored"},
						{"type": "text", "text": "second"},
					},
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should join the text blocks", func() {
			Expect(text).To(Equal("first\nsecond"))
		})

		It("should send the default model", func() {
			Expect(request["model"]).To(Equal("claude-3-7-sonnet-20250219"))
			Expect(request["max_tokens"]).To(BeEquivalentTo(1024))
		})

		It("should embed the image as base64 PNG", func() {
			messages := request["messages"].([]any)
			content := messages[0].(map[string]any)["content"].([]any)
			source := content[0].(map[string]any)["source"].(map[string]any)
			Expect(source["media_type"]).To(Equal("image/png"))
			Expect(source["data"]).To(Equal(base64.StdEncoding.EncodeToString(image)))
		})

		It("should send the shared prompt", func() {
			messages := request["messages"].([]any)
			content := messages[0].(map[string]any)["content"].([]any)
			Expect(content[1].(map[string]any)["text"]).To(Equal(Prompt()))
		})
	})

	When("the API rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":"invalid x-api-key"}`))
		})

		It("returns a vendor request error with the status code", func() {
			var vendorErr *VendorRequestError
			Expect(errors.As(err, &vendorErr)).To(BeTrue())
			Expect(vendorErr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(vendorErr.Vendor).To(Equal(VendorClaude))
			Expect(vendorErr.Body).To(ContainSubstring("invalid x-api-key"))
		})
	})
})

var _ = Describe("ChatGPT", func() {
	var (
		server  *ghttp.Server
		chatgpt *ChatGPT
		request map[string]any
		text    string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		chatgpt = NewChatGPT(server.URL()+"/", "gpt-test")
		request = nil
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = chatgpt.Recognize(context.Background(), []byte("png bytes"), "openai-key")
	})

	When("the API answers successfully", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer openai-key"),
				captureJSON(&request),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"choices": []map[string]any{
						{"message": map[string]any{"content": `{"payeeName":{"value":"Acme"}}`}},
					},
				}),
			))
		})

		It("should return the first choice's content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"payeeName":{"value":"Acme"}}`))
		})

		It("should send the configured model", func() {
			Expect(request["model"]).To(Equal("gpt-test"))
		})

		It("should embed the image as a data URL", func() {
			messages := request["messages"].([]any)
			content := messages[0].(map[string]any)["content"].([]any)
			imageURL := content[1].(map[string]any)["image_url"].(map[string]any)
			Expect(imageURL["url"]).To(HavePrefix("data:image/png;base64,"))
		})

		It("should request strict structured output", func() {
			format := request["response_format"].(map[string]any)
			Expect(format["type"]).To(Equal("json_schema"))
			schema := format["json_schema"].(map[string]any)
			Expect(schema["strict"]).To(BeTrue())
			Expect(schema["name"]).To(Equal("InvoiceFields"))
		})
	})

	When("the API answers without choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"choices": []any{}}))
		})

		It("should return empty text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(BeEmpty())
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusTooManyRequests, "slow down"))
		})

		It("returns a vendor request error with the status code", func() {
			var vendorErr *VendorRequestError
			Expect(errors.As(err, &vendorErr)).To(BeTrue())
			Expect(vendorErr.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(err.Error()).To(Equal("ChatGPT OCR request failed: 429 - slow down"))
		})
	})
})

var _ = Describe("Gemini", func() {
	Describe("NewGemini", func() {
		It("should default the model", func() {
			Expect(NewGemini("").modelName).To(Equal("gemini-2.0-flash"))
		})

		It("should report its vendor", func() {
			Expect(NewGemini("gemini-pro").Vendor()).To(Equal(VendorGemini))
		})
	})

	Describe("geminiResponseText", func() {
		It("should join the text parts of the first candidate", func() {
			resp := &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{Content: &genai.Content{Parts: []genai.Part{genai.Text("{"), genai.Text("}")}}},
					{Content: &genai.Content{Parts: []genai.Part{genai.Text("other")}}},
				},
			}
			Expect(geminiResponseText(resp)).To(Equal("{\n}"))
		})

		It("should return empty text without candidates", func() {
			Expect(geminiResponseText(&genai.GenerateContentResponse{})).To(BeEmpty())
		})
	})

	Describe("geminiError", func() {
		It("should carry the HTTP status of a Google API error", func() {
			err := geminiError(&googleapi.Error{Code: http.StatusForbidden, Message: "API key not valid"})
			var vendorErr *VendorRequestError
			Expect(errors.As(err, &vendorErr)).To(BeTrue())
			Expect(vendorErr.StatusCode).To(Equal(http.StatusForbidden))
			Expect(vendorErr.Vendor).To(Equal(VendorGemini))
		})

		It("should wrap other errors", func() {
			cause := errors.New("dial tcp: timeout")
			err := geminiError(cause)
			Expect(err).To(MatchError(cause))
			Expect(err.Error()).To(ContainSubstring("generating content"))
		})
	})
})

var _ = Describe("ParseVendor", func() {
	It("should accept known vendors case-insensitively", func() {
		v, err := ParseVendor(" ChatGPT ")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(VendorChatGPT))
	})

	It("returns the error for unknown vendors", func() {
		_, err := ParseVendor("ollama")
		Expect(err).To(MatchError(ErrUnknownVendor))
	})
})
