/*
sample.go - Canned legacy snapshot for demos and scenario loading

A small studio's worth of legacy data, shaped the way real exports
look: drifting field names, stringly-typed numbers, missing fields,
and a few records that cannot resolve. Exercises every consolidation
path end to end.
*/
package consolidate

// SampleSnapshot returns a legacy export for a fictional trailer-music
// studio. Project ids are the legacy store's own numbering and are
// preserved through consolidation.
func SampleSnapshot() *Snapshot {
	return &Snapshot{
		Projects: []Record{
			{"id": float64(7), "name": "Foo Trailer", "status": "active", "notes": "Rush delivery"},
			{"id": float64(12), "name": "Midnight Run", "status": "on hold"},
			{"id": float64(15), "name": "Harbor Lights", "status": "done"},
		},
		Scopes: []Record{
			{"projectId": float64(7), "musicMinutes": float64(12), "orchestrationHours": float64(8),
				"recordingHours": "6.5", "contact": "mixer@footrailer.example"},
			{"projectName": "Midnight Run", "musicMinutes": "45", "mixingHours": float64(20)},
		},
		Estimates: []Record{
			// Carries an explicit total; components stay zero.
			{"projectName": "Foo Trailer", "musicMinutes": float64(12), "total": float64(450)},
			// No total field: falls back to the component sum.
			{"projectId": float64(12), "creativeFee": float64(3000),
				"productionCost": float64(1200), "licensingFee": "800"},
			// Unresolvable: no such project.
			{"projectName": "Ghost Ship", "total": float64(990)},
		},
		Cues: map[string][]Record{
			"7": {
				{"number": float64(1), "title": "Rise", "status": "approved", "durationSecs": float64(95)},
				{"number": float64(2), "title": "Drop", "status": "in progress"},
				{"number": float64(3), "title": "Tail"},
			},
			"Midnight Run": {
				{"number": float64(1), "title": "Night Drive", "status": "recorded", "duration": "142"},
			},
			// Nothing has id 99: the whole batch is skipped.
			"99": {
				{"number": float64(1), "title": "Orphan One"},
				{"number": float64(2), "title": "Orphan Two"},
			},
		},
		Invoices: []Record{
			{"id": float64(310), "projectId": float64(7), "amount": float64(450),
				"depositPercent": float64(50), "status": "sent",
				"lineItems": []any{
					map[string]any{"description": "Trailer score", "amount": float64(400)},
					map[string]any{"description": "Stems delivery", "amount": float64(50)},
				}},
			{"id": float64(311), "projectName": "Midnight Run", "amount": "5000", "status": "draft"},
		},
		Payments: []Record{
			{"invoiceId": float64(310), "amount": float64(225), "method": "wire"},
			// References an invoice that never existed in the legacy store.
			{"invoiceId": float64(999), "amount": float64(100), "method": "check"},
		},
	}
}
