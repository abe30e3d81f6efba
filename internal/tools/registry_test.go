package tools_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pressmill/pressmill/copilot-core/internal/tools"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

func noopHandler(ctx context.Context, args map[string]interface{}, ec models.ExecutionContext) models.ToolResult {
	return models.ToolResult{Success: true}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	reg := tools.NewRegistry()

	d := tools.Descriptor{Name: "publish_article", Tier: models.TierConfirm, Handler: noopHandler}
	if err := reg.Register(d); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(d); err == nil {
		t.Error("duplicate Register() succeeded, want error")
	}
}

func TestRegister_RejectsEmptyNameAndNilHandler(t *testing.T) {
	reg := tools.NewRegistry()

	if err := reg.Register(tools.Descriptor{Tier: models.TierAuto, Handler: noopHandler}); err == nil {
		t.Error("Register with empty name succeeded, want error")
	}
	if err := reg.Register(tools.Descriptor{Name: "orphan", Tier: models.TierAuto}); err == nil {
		t.Error("Register with nil handler succeeded, want error")
	}
}

func TestRegister_DefaultsToConfirmTier(t *testing.T) {
	reg := tools.NewRegistry()

	if err := reg.Register(tools.Descriptor{Name: "mystery", Handler: noopHandler}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d, ok := reg.Get("mystery")
	if !ok {
		t.Fatal("Get(mystery) not found after Register")
	}
	if d.Tier != models.TierConfirm {
		t.Errorf("unclassified tool tier = %q, want %q", d.Tier, models.TierConfirm)
	}
}

func TestValidateArgs(t *testing.T) {
	reg := tools.NewRegistry()
	err := reg.Register(tools.Descriptor{
		Name: "update_article",
		Tier: models.TierConfirm,
		Schema: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"id"},
			"properties": map[string]interface{}{
				"id":    map[string]interface{}{"type": "string"},
				"title": map[string]interface{}{"type": "string"},
			},
		},
		Handler: noopHandler,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := reg.ValidateArgs("update_article", map[string]interface{}{"id": "a1"}); err != nil {
		t.Errorf("ValidateArgs(valid) error = %v", err)
	}
	if err := reg.ValidateArgs("update_article", map[string]interface{}{"title": "x"}); err == nil {
		t.Error("ValidateArgs missing required field passed, want error")
	}
	if err := reg.ValidateArgs("update_article", map[string]interface{}{"id": 7}); err == nil {
		t.Error("ValidateArgs wrong type passed, want error")
	}
	if err := reg.ValidateArgs("ghost", nil); err == nil {
		t.Error("ValidateArgs on unknown tool passed, want error")
	}
}

func TestDeclarations(t *testing.T) {
	reg := tools.NewRegistry()
	err := reg.Register(tools.Descriptor{
		Name:        "get_site_stats",
		Description: "Returns aggregate site statistics.",
		Tier:        models.TierAuto,
		Schema:      map[string]interface{}{"type": "object"},
		Handler:     noopHandler,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	decls := reg.Declarations()
	if len(decls) != 1 {
		t.Fatalf("Declarations() len = %d, want 1", len(decls))
	}
	d := decls[0]
	if d["type"] != "function" {
		t.Errorf("declaration type = %v, want function", d["type"])
	}
	if d["permission_tier"] != string(models.TierAuto) {
		t.Errorf("permission_tier = %v, want %q", d["permission_tier"], models.TierAuto)
	}
	fn, ok := d["function"].(map[string]interface{})
	if !ok {
		t.Fatalf("declaration function = %T, want map", d["function"])
	}
	if fn["name"] != "get_site_stats" {
		t.Errorf("function name = %v, want get_site_stats", fn["name"])
	}
	if fn["parameters"] == nil {
		t.Error("function parameters missing")
	}
}

func TestConfirmationMessage_Deterministic(t *testing.T) {
	d := &tools.Descriptor{
		Name:        "update_article",
		Description: "Updates an article in place.",
		Tier:        models.TierConfirm,
	}
	args := map[string]interface{}{"id": "a1", "title": "New title"}

	first := tools.ConfirmationMessage(d, args)
	second := tools.ConfirmationMessage(d, args)
	if first != second {
		t.Errorf("ConfirmationMessage not deterministic:\n%q\n%q", first, second)
	}
	if !strings.Contains(first, "update_article") {
		t.Errorf("message %q does not name the tool", first)
	}
	if !strings.Contains(first, "id: a1") || !strings.Contains(first, "title: New title") {
		t.Errorf("message %q does not render the arguments", first)
	}
	if strings.Contains(first, "IRREVERSIBLE") {
		t.Error("confirm-tier message carries the irreversibility warning")
	}
}

func TestConfirmationMessage_IrreversibleWarning(t *testing.T) {
	d := &tools.Descriptor{Name: "delete_article", Tier: models.TierConfirmTwice}

	msg := tools.ConfirmationMessage(d, map[string]interface{}{"id": "a1"})
	if !strings.Contains(msg, "IRREVERSIBLE") {
		t.Errorf("message %q missing irreversibility warning", msg)
	}
	if !strings.Contains(msg, "Confirm twice") {
		t.Errorf("message %q missing double-confirm instruction", msg)
	}
}
