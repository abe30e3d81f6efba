package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

// irreversibilityWarning is appended to every CONFIRM_TWICE confirmation
// message. The wording is part of the engine's contract: callers and
// tests rely on it being present verbatim for destructive tools.
const irreversibilityWarning = "WARNING: this action is IRREVERSIBLE and cannot be undone."

// ConfirmationMessage builds the deterministic caller-facing message for
// a gated invocation. It names the tool, states the permission tier in
// human terms, and renders the arguments verbatim so the caller can
// verify exactly what will execute before approving.
func ConfirmationMessage(d *Descriptor, args map[string]interface{}) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Tool %q %s.\n", d.Name, d.Tier.Human())
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n", d.Description)
	}
	b.WriteString("Arguments:\n")
	b.WriteString(renderArgs(args))

	switch d.Tier {
	case models.TierConfirmTwice:
		fmt.Fprintf(&b, "%s\nConfirm twice to proceed.", irreversibilityWarning)
	default:
		b.WriteString("Confirm to proceed.")
	}
	return b.String()
}

// renderArgs formats arguments as stable, human-readable lines. Keys are
// sorted so the message is reproducible for identical inputs.
func renderArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return "  (none)\n"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, args[k])
	}
	return b.String()
}
