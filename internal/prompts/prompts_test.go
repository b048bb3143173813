package prompts

import (
	"strings"
	"testing"
)

func TestBuildDocumentAbstract(t *testing.T) {
	p, err := Build(PromptDocumentAbstract, Input{
		DocumentTitle: "Intro to Sorting",
		SourceKind:    "pdf",
		Excerpts:      "Bubble sort compares adjacent pairs.",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Name != "document_abstract" || p.Version != 1 || p.SchemaName != "document_abstract" {
		t.Fatalf("prompt identity = %s v%d schema %s", p.Name, p.Version, p.SchemaName)
	}
	if !strings.Contains(p.User, "Intro to Sorting") || !strings.Contains(p.User, "Bubble sort") {
		t.Fatalf("user prompt missing rendered fields:\n%s", p.User)
	}
	if strings.Contains(p.User, "{{") {
		t.Fatalf("unrendered template in user prompt:\n%s", p.User)
	}
	if p.Schema == nil {
		t.Fatalf("schema not materialized")
	}
}

func TestBuildUnknownPromptFails(t *testing.T) {
	if _, err := Build(PromptName("nope"), Input{}); err == nil {
		t.Fatalf("expected error for unknown prompt")
	}
}

func TestBuildFailsClosedOnBadInput(t *testing.T) {
	cases := []struct {
		name string
		p    PromptName
		in   Input
	}{
		{"abstract without excerpts", PromptDocumentAbstract, Input{DocumentTitle: "t"}},
		{"keywords without batch text", PromptDocumentKeywords, Input{DocumentTitle: "t", BatchIndex: 1, BatchCount: 1}},
		{"quiz without excerpts", PromptDocumentQuiz, Input{DocumentTitle: "t", QuestionCount: 5}},
		{"quiz count zero", PromptDocumentQuiz, Input{Excerpts: "x", QuestionCount: 0}},
		{"quiz count over cap", PromptDocumentQuiz, Input{Excerpts: "x", QuestionCount: 21}},
	}
	for _, c := range cases {
		if _, err := Build(c.p, c.in); err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}

func TestQuizPromptRendersCountAndAbstract(t *testing.T) {
	p, err := Build(PromptDocumentQuiz, Input{
		DocumentTitle: "Networks",
		Excerpts:      "TCP retransmits lost segments.",
		Abstract:      "A networking primer.",
		QuestionCount: 7,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(p.User, "exactly 7 entries") {
		t.Fatalf("question count not rendered:\n%s", p.User)
	}
	if !strings.Contains(p.User, "ABSTRACT:") || !strings.Contains(p.User, "A networking primer.") {
		t.Fatalf("abstract section missing:\n%s", p.User)
	}

	noAbs, err := Build(PromptDocumentQuiz, Input{Excerpts: "x", QuestionCount: 3})
	if err != nil {
		t.Fatalf("Build without abstract: %v", err)
	}
	if strings.Contains(noAbs.User, "ABSTRACT:") {
		t.Fatalf("abstract section rendered without input:\n%s", noAbs.User)
	}
}

func TestKeywordBatchContext(t *testing.T) {
	p, err := Build(PromptDocumentKeywords, Input{
		DocumentTitle: "Networks",
		BatchText:     "routers forward packets",
		BatchIndex:    2,
		BatchCount:    5,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(p.User, "BATCH: 2 of 5") {
		t.Fatalf("batch context not rendered:\n%s", p.User)
	}
}

func TestSchemasAreStrictVersionedObjects(t *testing.T) {
	for _, name := range []PromptName{PromptDocumentAbstract, PromptDocumentKeywords, PromptDocumentQuiz} {
		schemaName, schema, ok := Schema(name)
		if !ok {
			t.Fatalf("%s: not registered", name)
		}
		if schemaName == "" {
			t.Fatalf("%s: empty schema name", name)
		}
		if schema["type"] != "object" {
			t.Fatalf("%s: top level type = %v", name, schema["type"])
		}
		if ap, okCast := schema["additionalProperties"].(bool); !okCast || ap {
			t.Fatalf("%s: additionalProperties must be false", name)
		}
		required, okCast := schema["required"].([]string)
		if !okCast {
			t.Fatalf("%s: required missing", name)
		}
		for _, want := range []string{"version", "warnings", "diagnostics"} {
			found := false
			for _, r := range required {
				if r == want {
					found = true
				}
			}
			if !found {
				t.Fatalf("%s: %q not required", name, want)
			}
		}
	}
}

func TestFingerprintDistinguishesPrompts(t *testing.T) {
	a, err := Build(PromptDocumentAbstract, Input{Excerpts: "alpha"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(PromptDocumentAbstract, Input{Excerpts: "beta"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("different inputs must fingerprint differently")
	}
	a2, err := Build(PromptDocumentAbstract, Input{Excerpts: "alpha"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.Fingerprint() != a2.Fingerprint() {
		t.Fatalf("same input must fingerprint identically")
	}
}
