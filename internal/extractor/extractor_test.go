package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/fisheries-data/creel/internal/providers"
	"github.com/fisheries-data/creel/internal/regs"
)

const twoLakeText = `CLEAR LAKE (Itasca) Walleye daily limit 2.

MUD LAKE (Cass) Sunfish daily limit 10.`

// respondByEntry returns a canned response keyed on the entry name
// embedded in the user prompt.
func respondByEntry(responses map[string]string) func(req *providers.ChatRequest) (json.RawMessage, error) {
	return func(req *providers.ChatRequest) (json.RawMessage, error) {
		prompt := req.Messages[len(req.Messages)-1].Content
		for name, resp := range responses {
			if strings.Contains(prompt, name) {
				return json.RawMessage(resp), nil
			}
		}
		return nil, fmt.Errorf("no canned response for prompt")
	}
}

func TestExtractDecodesRegulations(t *testing.T) {
	mock := providers.NewMockClient()
	mock.RespondFn = respondByEntry(map[string]string{
		"CLEAR LAKE": `{"species":[{"name":"Walleye","regulationType":"daily_limit","dailyLimit":2}],"confidence":0.95}`,
		"MUD LAKE":   `{"species":[{"name":"Sunfish","regulationType":"daily_limit","dailyLimit":10}]}`,
	})

	e := New(Options{Client: mock})
	result := e.Extract(context.Background(), twoLakeText)

	if !result.Success {
		t.Fatalf("extraction failed: %s", result.Error)
	}
	if result.LakesProcessed != 2 {
		t.Errorf("LakesProcessed = %d, want 2", result.LakesProcessed)
	}
	if len(result.Regulations) != 2 {
		t.Fatalf("expected 2 regulations, got %d", len(result.Regulations))
	}

	first := result.Regulations[0]
	if first.WaterBody != "Clear Lake" {
		t.Errorf("WaterBody = %q, want title-cased %q", first.WaterBody, "Clear Lake")
	}
	if first.Locality != "Itasca" {
		t.Errorf("Locality = %q, want %q", first.Locality, "Itasca")
	}
	if first.Confidence != 0.95 {
		t.Errorf("explicit backend confidence not honored: %v", first.Confidence)
	}
	if len(first.Rules) != 1 || *first.Rules[0].DailyLimit != 2 {
		t.Errorf("unexpected rules: %+v", first.Rules)
	}

	// Second entry supplies no confidence: the completeness policy applies.
	second := result.Regulations[1]
	if second.Confidence != DefaultConfidencePolicy().High {
		t.Errorf("policy confidence = %v, want %v", second.Confidence, DefaultConfidencePolicy().High)
	}
}

func TestExtractStreamOrder(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(`{"species":[{"name":"Walleye","regulationType":"daily_limit","dailyLimit":2}]}`)

	var order []string
	e := New(Options{Client: mock})
	result := e.ExtractStream(context.Background(), twoLakeText, func(reg regs.ExtractedRegulation) error {
		order = append(order, reg.WaterBody)
		return nil
	})

	if !result.Success {
		t.Fatalf("extraction failed: %s", result.Error)
	}
	want := []string{"Clear Lake", "Mud Lake"}
	if len(order) != len(want) {
		t.Fatalf("callback count = %d, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("callback %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestExtractChunkTagsSourceChunk(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(`{"species":[{"name":"Walleye","regulationType":"daily_limit","dailyLimit":2}]}`)

	e := New(Options{Client: mock})
	result := e.ExtractChunk(context.Background(), regs.TextChunk{
		Index: 3,
		Text:  "CLEAR LAKE (Itasca) Walleye daily limit 2.",
	}, nil)

	if len(result.Regulations) != 1 {
		t.Fatalf("expected 1 regulation, got %d", len(result.Regulations))
	}
	if result.Regulations[0].SourceChunk != 3 {
		t.Errorf("SourceChunk = %d, want 3", result.Regulations[0].SourceChunk)
	}
}

func TestExtractEntryFailureBecomesWarning(t *testing.T) {
	mock := providers.NewMockClient()
	mock.RespondFn = respondByEntry(map[string]string{
		// CLEAR LAKE has no canned response, so both its call and the
		// repair round fail.
		"MUD LAKE": `{"species":[{"name":"Sunfish","regulationType":"daily_limit","dailyLimit":10}]}`,
	})

	e := New(Options{Client: mock})
	result := e.Extract(context.Background(), twoLakeText)

	if !result.Success {
		t.Fatal("a single failed entry must not fail the result")
	}
	if len(result.Regulations) != 1 {
		t.Fatalf("expected 1 surviving regulation, got %d", len(result.Regulations))
	}
	if result.Regulations[0].WaterBody != "Mud Lake" {
		t.Errorf("wrong survivor: %q", result.Regulations[0].WaterBody)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "CLEAR LAKE") {
			found = true
		}
	}
	if !found {
		t.Errorf("failed entry should be recorded in warnings: %v", result.Warnings)
	}
}

func TestExtractCancellationBetweenEntries(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(`{"species":[{"name":"Walleye","regulationType":"daily_limit","dailyLimit":2}]}`)

	ctx, cancel := context.WithCancel(context.Background())
	e := New(Options{Client: mock})
	result := e.ExtractStream(ctx, twoLakeText, func(reg regs.ExtractedRegulation) error {
		cancel()
		return nil
	})

	if !result.Cancelled {
		t.Error("result should be marked cancelled")
	}
	if !result.Success {
		t.Error("a cancelled partial result is still a successful result")
	}
	if len(result.Regulations) != 1 {
		t.Errorf("expected 1 regulation extracted before cancellation, got %d", len(result.Regulations))
	}
}

func TestExtractSkipsBoilerplate(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(`{"species":[]}`)

	e := New(Options{Client: mock})
	result := e.Extract(context.Background(), "GENERAL PROVISIONS (Statewide) See statewide limits.")

	if !result.Success {
		t.Fatalf("extraction failed: %s", result.Error)
	}
	if len(result.Regulations) != 0 {
		t.Errorf("boilerplate should produce no regulations, got %d", len(result.Regulations))
	}
	if result.LakesProcessed != 1 {
		t.Errorf("LakesProcessed = %d, want 1", result.LakesProcessed)
	}
}

func TestExtractRepairRound(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Responses = []json.RawMessage{
		// First response violates the schema (species items need a name).
		json.RawMessage(`{"species":[{"regulationType":"daily_limit"}]}`),
		json.RawMessage(`{"species":[{"name":"Walleye","regulationType":"daily_limit","dailyLimit":2}]}`),
	}

	e := New(Options{Client: mock})
	result := e.Extract(context.Background(), "CLEAR LAKE (Itasca) Walleye daily limit 2.")

	if len(result.Regulations) != 1 {
		t.Fatalf("repair round should recover the entry: %+v", result)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("request count = %d, want 2 (original plus one repair)", mock.RequestCount())
	}
}

func TestExtractCoercesUnknownKind(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(`{"species":[{"name":"Walleye","regulationType":"bag-limit","dailyLimit":2}]}`)

	e := New(Options{Client: mock})
	result := e.Extract(context.Background(), "CLEAR LAKE (Itasca) Walleye daily limit 2.")

	if len(result.Regulations) != 1 {
		t.Fatalf("expected 1 regulation, got %d", len(result.Regulations))
	}
	if got := result.Regulations[0].Rules[0].Kind; got != regs.KindCombined {
		t.Errorf("unknown kind should coerce to combined, got %q", got)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "unrecognized regulation type") {
			found = true
		}
	}
	if !found {
		t.Errorf("coercion should warn: %v", result.Warnings)
	}
}

func TestExtractFlexibleNumericFields(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(`{"species":[{"name":"Walleye","regulationType":"size_limit","minimumSize":"15 inches","dailyLimit":"4"}]}`)

	e := New(Options{Client: mock})
	result := e.Extract(context.Background(), "CLEAR LAKE (Itasca) Walleye minimum 15 inches.")

	if len(result.Regulations) != 1 {
		t.Fatalf("expected 1 regulation, got %d", len(result.Regulations))
	}
	rule := result.Regulations[0].Rules[0]
	if rule.MinimumSize == nil || *rule.MinimumSize != 15 {
		t.Errorf("MinimumSize = %v, want 15", rule.MinimumSize)
	}
	if rule.DailyLimit == nil || *rule.DailyLimit != 4 {
		t.Errorf("DailyLimit = %v, want 4", rule.DailyLimit)
	}
}
