/*
mapping.go - Explicit, total field mapping per legacy kind

Each kind gets its own mapping function instead of reflective field
copying: every target field names its accepted legacy aliases and its
fallback, so a mapped entity is always complete no matter how little
the legacy record carried. Numeric fields default to zero, text to "",
statuses to the entity's initial state.
*/
package consolidate

import (
	"strings"

	"github.com/quartertone/studio-engine/studio"
)

func mapProject(rec Record) *studio.Project {
	return &studio.Project{
		ID:     rec.Int("id", "legacyId", "legacy_id"),
		Name:   rec.Str("name", "projectName", "project_name", "title"),
		Status: normalizeProjectStatus(rec.Str("status", "state")),
		Notes:  rec.Str("notes", "description"),
	}
}

func mapScope(projectID int64, rec Record) *studio.Scope {
	return &studio.Scope{
		ProjectID:          projectID,
		MusicMinutes:       int(rec.Int("musicMinutes", "music_minutes", "minutes")),
		OrchestrationHours: rec.Float("orchestrationHours", "orchestration_hours"),
		RecordingHours:     rec.Float("recordingHours", "recording_hours"),
		MixingHours:        rec.Float("mixingHours", "mixing_hours"),
		Contact:            rec.Str("contact", "contactEmail", "contact_email"),
	}
}

// mapEstimate applies the total fallback: a legacy estimate that never
// stored its total gets the sum of its component costs instead, so the
// migrated row is always internally consistent.
func mapEstimate(projectID int64, rec Record) *studio.Estimate {
	e := &studio.Estimate{
		ProjectID:      projectID,
		MusicMinutes:   int(rec.Int("musicMinutes", "music_minutes", "minutes")),
		CreativeFee:    rec.Money("creativeFee", "creative_fee"),
		ProductionCost: rec.Money("productionCost", "production_cost"),
		LicensingFee:   rec.Money("licensingFee", "licensing_fee"),
		TotalCost:      rec.Money("total", "totalCost", "total_cost"),
	}
	if e.TotalCost.IsZero() {
		e.TotalCost = e.CreativeFee.Add(e.ProductionCost).Add(e.LicensingFee)
	}
	return e
}

func mapCue(projectID int64, rec Record) *studio.Cue {
	return &studio.Cue{
		ProjectID:    projectID,
		Number:       int(rec.Int("number", "cueNumber", "cue_number")),
		Title:        rec.Str("title", "name"),
		Status:       normalizeCueStatus(rec.Str("status", "state")),
		DurationSecs: int(rec.Int("durationSecs", "duration_secs", "duration")),
		Notes:        rec.Str("notes"),
	}
}

func mapInvoice(projectID int64, rec Record) *studio.Invoice {
	inv := &studio.Invoice{
		ProjectID:      projectID,
		Amount:         rec.Money("amount", "total"),
		DepositPercent: rec.Float("depositPercent", "deposit_percent", "deposit"),
		Status:         normalizeInvoiceStatus(rec.Str("status", "state")),
	}

	// Legacy line items come as an array of {description, amount} objects;
	// malformed entries are dropped rather than failing the invoice.
	if raw, ok := rec["lineItems"]; ok {
		inv.LineItems = mapLineItems(raw)
	} else if raw, ok := rec["line_items"]; ok {
		inv.LineItems = mapLineItems(raw)
	} else if raw, ok := rec["items"]; ok {
		inv.LineItems = mapLineItems(raw)
	}
	return inv
}

func mapLineItems(raw any) []studio.LineItem {
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	items := make([]studio.LineItem, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		item := Record(obj)
		items = append(items, studio.LineItem{
			Description: item.Str("description", "desc", "label"),
			Amount:      item.Money("amount", "price"),
		})
	}
	return items
}

func mapPayment(invoiceID int64, rec Record) *studio.Payment {
	return &studio.Payment{
		InvoiceID: invoiceID,
		// ProjectID is deliberately left zero: the store derives it from
		// the invoice row, never from legacy data.
		Amount: rec.Money("amount"),
		Method: rec.Str("method", "paymentMethod", "payment_method"),
		Notes:  rec.Str("notes", "memo"),
	}
}

// =============================================================================
// STATUS NORMALIZATION - legacy spellings onto canonical enums
// =============================================================================

func normalizeProjectStatus(s string) studio.ProjectStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "open", "in production":
		return studio.ProjectActive
	case "on_hold", "on hold", "hold", "paused":
		return studio.ProjectOnHold
	case "completed", "complete", "done", "delivered":
		return studio.ProjectCompleted
	case "archived", "closed":
		return studio.ProjectArchived
	default:
		return studio.ProjectActive
	}
}

func normalizeCueStatus(s string) studio.CueStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in_progress", "in progress", "writing", "sketching":
		return studio.CueInProgress
	case "recorded", "tracked":
		return studio.CueRecorded
	case "approved", "final", "locked":
		return studio.CueApproved
	default:
		return studio.CueNotStarted
	}
}

func normalizeInvoiceStatus(s string) studio.InvoiceStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent", "open", "issued", "outstanding":
		return studio.InvoiceSent
	case "paid", "settled":
		return studio.InvoicePaid
	case "void", "voided", "cancelled", "canceled":
		return studio.InvoiceVoid
	default:
		return studio.InvoiceDraft
	}
}
