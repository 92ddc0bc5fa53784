package request_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

func storyParams() request.Params {
	return request.Params{
		Capability:   "story",
		ContentClass: "story",
		Topic:        "Dinosaurs in Space",
		AgeBracket:   "6-8",
		Locale:       "en_US",
		Features:     []string{"illustrated", "audio"},
	}
}

var _ = Describe("Fingerprint", func() {
	It("should be deterministic", func() {
		Expect(request.Fingerprint(storyParams())).To(Equal(request.Fingerprint(storyParams())))
		Expect(request.Fingerprint(storyParams())).To(HaveLen(16))
	})

	It("should ignore case, spacing, locale separators and feature order", func() {
		variant := request.Params{
			Capability:   " STORY ",
			ContentClass: "Story",
			Topic:        "  dinosaurs   in space ",
			AgeBracket:   "6 - 8",
			Locale:       "EN-us",
			Features:     []string{"Audio", "illustrated", "audio"},
		}
		Expect(request.Fingerprint(variant)).To(Equal(request.Fingerprint(storyParams())))
	})

	DescribeTable("should change when a semantic field changes",
		func(mutate func(*request.Params)) {
			p := storyParams()
			mutate(&p)
			Expect(request.Fingerprint(p)).NotTo(Equal(request.Fingerprint(storyParams())))
		},
		Entry("capability", func(p *request.Params) { p.Capability = "chat" }),
		Entry("content class", func(p *request.Params) { p.ContentClass = "conversation" }),
		Entry("topic", func(p *request.Params) { p.Topic = "pirates" }),
		Entry("age bracket", func(p *request.Params) { p.AgeBracket = "9-12" }),
		Entry("locale", func(p *request.Params) { p.Locale = "pt-br" }),
		Entry("features", func(p *request.Params) { p.Features = []string{"audio"} }),
	)

	It("should not let adjacent fields bleed into each other", func() {
		a := storyParams()
		a.Topic, a.AgeBracket = "ab", ""
		b := storyParams()
		b.Topic, b.AgeBracket = "a", "b"
		Expect(request.Fingerprint(a)).NotTo(Equal(request.Fingerprint(b)))
	})

	It("should not let a separator inside a value shift the field boundaries", func() {
		a := storyParams()
		a.ContentClass, a.Topic = "c\x1fa", "b"
		b := storyParams()
		b.ContentClass, b.Topic = "c", "a\x1fb"
		Expect(request.Fingerprint(a)).NotTo(Equal(request.Fingerprint(b)))
	})

	It("should keep features apart from each other", func() {
		a := storyParams()
		a.Features = []string{"a,b"}
		b := storyParams()
		b.Features = []string{"a", "b"}
		Expect(request.Fingerprint(a)).NotTo(Equal(request.Fingerprint(b)))
	})
})

var _ = Describe("New", func() {
	It("should normalize, validate and fingerprint", func() {
		deadline := time.Now().Add(time.Second)
		req, err := request.New(storyParams(), []byte("payload"), 2, deadline)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Locale).To(Equal("en-us"))
		Expect(req.Features).To(Equal([]string{"audio", "illustrated"}))
		Expect(req.Fingerprint).To(Equal(request.Fingerprint(storyParams())))
		Expect(req.Priority).To(Equal(2))
		Expect(req.Deadline).To(Equal(deadline))
	})

	DescribeTable("should reject malformed params with a ValidationError",
		func(mutate func(*request.Params)) {
			p := storyParams()
			mutate(&p)
			_, err := request.New(p, nil, 0, time.Time{})
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, request.ErrValidation)).To(BeTrue())

			var verr *request.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		},
		Entry("empty topic", func(p *request.Params) { p.Topic = "   " }),
		Entry("empty capability", func(p *request.Params) { p.Capability = "" }),
		Entry("empty locale", func(p *request.Params) { p.Locale = "" }),
		Entry("bad locale", func(p *request.Params) { p.Locale = "english!" }),
		Entry("bad age bracket", func(p *request.Params) { p.AgeBracket = "toddler" }),
		Entry("bad feature", func(p *request.Params) { p.Features = []string{"has space"} }),
	)
})

var _ = Describe("Source", func() {
	It("should flag fallbacks as degraded", func() {
		Expect(request.SourceLive.Degraded()).To(BeFalse())
		Expect(request.SourceCache.Degraded()).To(BeFalse())
		Expect(request.SourceFallbackStale.Degraded()).To(BeTrue())
		Expect(request.SourceFallbackStatic.Degraded()).To(BeTrue())
	})
})
