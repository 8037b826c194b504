package embedded

import _ "embed"

// ScenarioRecords holds run records for the scenario model, one JSON object per line.
//
//go:embed scenario.jsonl
var ScenarioRecords []byte
