package output

import (
	"encoding/json"

	"rashomon/internal/driver"
	"rashomon/internal/querybuilder"
	"rashomon/internal/storageengine"
)

type jsonFormatter struct{}

type resultPayload struct {
	Op     string       `json:"op"`
	Status int          `json:"status"`
	Count  int          `json:"count"`
	Items  []driver.Row `json:"items,omitempty"`
}

type planPayload struct {
	Statements []planStatement `json:"statements"`
}

type planStatement struct {
	CQL    string `json:"cql"`
	Params []any  `json:"params,omitempty"`
}

func (jsonFormatter) FormatResult(op string, res storageengine.Result) (string, error) {
	return marshalJSON(resultPayload{
		Op:     op,
		Status: res.Status,
		Count:  res.Count,
		Items:  res.Items,
	})
}

func (jsonFormatter) FormatPlan(stmts []querybuilder.Statement) (string, error) {
	payload := planPayload{Statements: make([]planStatement, len(stmts))}
	for i, stmt := range stmts {
		payload.Statements[i] = planStatement{CQL: stmt.CQL, Params: stmt.Params}
	}
	return marshalJSON(payload)
}

func marshalJSON[T resultPayload | planPayload](payload T) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
