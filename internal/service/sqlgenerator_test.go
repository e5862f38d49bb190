package service

import (
	"context"
	"errors"
	"testing"
)

func TestSQLGeneratorService_ParsesConcatenatedObjects(t *testing.T) {
	gw := &fakeTextGenerator{response: `{"databaseId":"db1","sql":"SELECT 1"}{"databaseId":"db2","sql":"SELECT 2"}`}
	gen := NewSQLGeneratorService(gw)

	result, err := gen.GenerateSQL(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["db1"] != "SELECT 1" || result["db2"] != "SELECT 2" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSQLGeneratorService_StripsMarkdownFence(t *testing.T) {
	gw := &fakeTextGenerator{response: "```json\n" + `{"databaseId":"db1","sql":"SELECT 1"}` + "\n```"}
	gen := NewSQLGeneratorService(gw)

	result, err := gen.GenerateSQL(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["db1"] != "SELECT 1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSQLGeneratorService_AcceptsJSONArray(t *testing.T) {
	gw := &fakeTextGenerator{response: `[{"databaseId":"db1","sql":"SELECT 1"}]`}
	gen := NewSQLGeneratorService(gw)

	result, err := gen.GenerateSQL(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["db1"] != "SELECT 1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSQLGeneratorService_SkipsBlankStatements(t *testing.T) {
	gw := &fakeTextGenerator{response: `{"databaseId":"db1","sql":""}{"databaseId":"db2","sql":"SELECT 2"}`}
	gen := NewSQLGeneratorService(gw)

	result, err := gen.GenerateSQL(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result["db1"]; ok {
		t.Error("expected blank SQL to be skipped")
	}
	if result["db2"] != "SELECT 2" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSQLGeneratorService_MalformedResponseErrors(t *testing.T) {
	gw := &fakeTextGenerator{response: "not json at all"}
	gen := NewSQLGeneratorService(gw)

	if _, err := gen.GenerateSQL(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestSQLGeneratorService_EmptyResponseErrors(t *testing.T) {
	gw := &fakeTextGenerator{response: "   "}
	gen := NewSQLGeneratorService(gw)

	if _, err := gen.GenerateSQL(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestSQLGeneratorService_GatewayErrorPropagates(t *testing.T) {
	gw := &fakeTextGenerator{err: errors.New("provider unavailable")}
	gen := NewSQLGeneratorService(gw)

	if _, err := gen.GenerateSQL(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error to propagate")
	}
}
