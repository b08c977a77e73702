package coach

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/salescoach/pkg/provider/llm/mock"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, map[ProviderID]*mock.Provider) {
	t.Helper()
	providers := map[ProviderID]*mock.Provider{
		ProviderGemini:   {},
		ProviderDeepSeek: {},
		ProviderOpenAI:   {},
	}
	adapters := make(map[ProviderID]Coach, len(providers))
	for id, p := range providers {
		var opts []Option
		if id == ProviderGemini {
			opts = append(opts, WithCaseStudies())
		}
		adapters[id] = newTestAdapter(p, id, opts...)
	}
	d, err := NewDispatcher(adapters)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d, providers
}

func TestDispatcher_Routing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		requested ProviderID
		want      ProviderID
	}{
		{ProviderGemini, ProviderGemini},
		{ProviderDeepSeek, ProviderDeepSeek},
		{ProviderOpenAI, ProviderOpenAI},
		{"", ProviderGemini},
		{"claude", ProviderGemini},
	}
	for _, tc := range tests {
		t.Run(string(tc.requested), func(t *testing.T) {
			t.Parallel()
			d, providers := newTestDispatcher(t)
			providers[tc.want].Responses = []mock.Response{{Content: `{"category":"Seguros"}`}}

			got, _, err := d.CategorizeText(context.Background(), tc.requested, "texto")
			if err != nil {
				t.Fatalf("CategorizeText: %v", err)
			}
			if got != "Seguros" {
				t.Errorf("category = %q", got)
			}
			for id, p := range providers {
				want := 0
				if id == tc.want {
					want = 1
				}
				if n := len(p.Calls()); n != want {
					t.Errorf("%s received %d calls, want %d", id, n, want)
				}
			}
		})
	}
}

func TestDispatcher_CaseStudyAlwaysRoutedToDesignatedProvider(t *testing.T) {
	t.Parallel()
	for _, requested := range []ProviderID{ProviderGemini, ProviderDeepSeek, ProviderOpenAI, "unknown"} {
		d, providers := newTestDispatcher(t)
		providers[ProviderGemini].Responses = []mock.Response{{Content: caseStudyReply}}

		cs, _, err := d.GenerateCaseStudy(context.Background(), requested, "Cobro no reconocido", "")
		if err != nil {
			t.Fatalf("%s: GenerateCaseStudy: %v", requested, err)
		}
		if cs.Provider != ProviderGemini {
			t.Errorf("%s: provider = %q, want gemini", requested, cs.Provider)
		}
		if len(providers[ProviderDeepSeek].Calls())+len(providers[ProviderOpenAI].Calls()) != 0 {
			t.Errorf("%s: non-designated providers were called", requested)
		}
	}
}

func TestDispatcher_CaseStudyProviderUnsupported(t *testing.T) {
	t.Parallel()
	d, err := NewDispatcher(map[ProviderID]Coach{
		ProviderGemini: newTestAdapter(&mock.Provider{}, ProviderGemini),
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	if _, _, err := d.GenerateCaseStudy(context.Background(), ProviderGemini, "x", ""); !errors.Is(err, ErrCaseStudyUnsupported) {
		t.Errorf("err = %v, want ErrCaseStudyUnsupported", err)
	}
}

func TestNewDispatcher_RequiresDefault(t *testing.T) {
	t.Parallel()
	_, err := NewDispatcher(map[ProviderID]Coach{
		ProviderOpenAI: newTestAdapter(&mock.Provider{}, ProviderOpenAI),
	})
	if err == nil {
		t.Fatal("expected error when the default provider has no adapter")
	}

	d, err := NewDispatcher(map[ProviderID]Coach{
		ProviderOpenAI: newTestAdapter(&mock.Provider{}, ProviderOpenAI),
	}, WithDefaultProvider(ProviderOpenAI))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	if id, _ := d.Resolve("gemini"); id != ProviderOpenAI {
		t.Errorf("Resolve(gemini) = %q, want openai fallback", id)
	}
	if d.Has(ProviderGemini) {
		t.Error("Has(gemini) should be false")
	}
}

func TestDispatcher_ForwardsArgumentsUnchanged(t *testing.T) {
	t.Parallel()
	d, providers := newTestDispatcher(t)
	providers[ProviderDeepSeek].Responses = []mock.Response{{Content: "Hola, ¿quién habla?"}}
	history := []ChatMessage{{Role: ChatRoleUser, Text: "Buenas tardes"}}

	reply, _, err := d.GetRolePlayResponse(context.Background(), ProviderDeepSeek, history, "El Ocupado", "Cuenta de Ahorros")
	if err != nil {
		t.Fatalf("GetRolePlayResponse: %v", err)
	}
	if reply != "Hola, ¿quién habla?" {
		t.Errorf("reply = %q", reply)
	}
	req := providers[ProviderDeepSeek].Calls()[0].Req
	if len(req.Messages) != 1 || req.Messages[0].Content != "Buenas tardes" {
		t.Errorf("messages = %+v", req.Messages)
	}
}
