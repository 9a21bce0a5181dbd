package scanning

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Prompt", func() {
	It("should name every invoice field", func() {
		for _, name := range FieldNames {
			Expect(Prompt()).To(ContainSubstring(string(name)))
		}
	})

	It("should ask for the analyzed image size", func() {
		Expect(Prompt()).To(ContainSubstring("imageWidthPx"))
		Expect(Prompt()).To(ContainSubstring("imageHeightPx"))
	})

	It("should embed the annotated schema", func() {
		Expect(Prompt()).To(ContainSubstring(`"pattern": "^T\\d{13}$"`))
		Expect(Prompt()).To(ContainSubstring("draft-07"))
	})
})

var _ = Describe("buildSchema", func() {
	When("strict", func() {
		var schema map[string]any

		BeforeEach(func() {
			data, err := json.Marshal(buildSchema(true))
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(data, &schema)).To(Succeed())
		})

		It("should close the root object", func() {
			Expect(schema["additionalProperties"]).To(BeFalse())
			Expect(schema).NotTo(HaveKey("$schema"))
		})

		It("should require every property", func() {
			properties := schema["properties"].(map[string]any)
			Expect(schema["required"]).To(HaveLen(len(properties)))
		})

		It("should drop patterns and examples from field values", func() {
			properties := schema["properties"].(map[string]any)
			field := properties["registrationNumber"].(map[string]any)
			Expect(field["additionalProperties"]).To(BeFalse())
			value := field["properties"].(map[string]any)["value"].(map[string]any)
			Expect(value).NotTo(HaveKey("pattern"))
			Expect(value).NotTo(HaveKey("example"))
		})
	})

	When("annotated", func() {
		It("should keep the field patterns", func() {
			schema := buildSchema(false)
			Expect(schema.Properties["currency"].Properties["value"].Pattern).To(Equal(`^[A-Z]{3}$`))
			Expect(schema.AdditionalProperties).To(BeNil())
		})
	})
})
