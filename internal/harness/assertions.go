package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/bloom/internal/event"
	"github.com/roach88/bloom/internal/store"
)

// validIdentifier matches SQL identifiers. Table and column names cannot be
// bound as parameters, so anything else is refused.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Events   []event.Event
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nEvents:\n")
		for i, ev := range e.Events {
			if ev.Tag == event.TimerTick || ev.Tag == event.DisplayRefresh {
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, ev)
		}
	}
	return buf.String()
}

// assertStatus compares the final status against expected values. Nested
// objects such as plant are matched as subsets too.
func assertStatus(result *Result, assertion Assertion) error {
	raw, err := json.Marshal(result.Status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	var actual map[string]any
	if err := json.Unmarshal(raw, &actual); err != nil {
		return fmt.Errorf("unmarshal status: %w", err)
	}

	for _, key := range sortedKeys(assertion.Expect) {
		got, ok := lookupField(actual, key)
		if !ok {
			return &AssertionError{
				Type:     AssertStatus,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   "field not present",
			}
		}
		if !subsetEqual(got, assertion.Expect[key]) {
			return &AssertionError{
				Type:     AssertStatus,
				Expected: fmt.Sprintf("%s = %v", key, assertion.Expect[key]),
				Actual:   fmt.Sprintf("%s = %v", key, got),
			}
		}
	}
	return nil
}

// lookupField resolves dotted keys such as "plant.stage".
func lookupField(m map[string]any, key string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(key, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// assertEventContains checks that at least one event with the tag (and,
// when given, a matching payload) was emitted.
func assertEventContains(events []event.Event, assertion Assertion) error {
	tag, _ := parseTag(assertion.Tag)
	for _, ev := range events {
		if ev.Tag == tag && payloadMatches(ev, assertion.Payload) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: fmt.Sprintf("event %s with payload %v", assertion.Tag, assertion.Payload),
		Actual:   "not found",
		Events:   events,
	}
}

// assertEventOrder checks that the first occurrences of the tags appear in
// the given order. Other events may come in between.
func assertEventOrder(events []event.Event, assertion Assertion) error {
	positions := make(map[string]int)
	for i, ev := range events {
		name := ev.Tag.String()
		if _, seen := positions[name]; !seen {
			positions[name] = i + 1
		}
	}

	for _, name := range assertion.Tags {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Tags),
				Actual:   fmt.Sprintf("missing event: %s", name),
				Events:   events,
			}
		}
	}
	for i := 1; i < len(assertion.Tags); i++ {
		prev, curr := assertion.Tags[i-1], assertion.Tags[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Tags),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Events: events,
			}
		}
	}
	return nil
}

// assertEventCount checks the exact number of events with the tag.
func assertEventCount(events []event.Event, assertion Assertion) error {
	tag, _ := parseTag(assertion.Tag)
	count := 0
	for _, ev := range events {
		if ev.Tag == tag && payloadMatches(ev, assertion.Payload) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Tag),
			Actual:   fmt.Sprintf("%d occurrences", count),
		}
	}
	return nil
}

func payloadMatches(ev event.Event, want map[string]any) bool {
	for key, expected := range want {
		var got uint64
		var ok bool
		switch key {
		case "task":
			var v uint32
			v, ok = ev.TaskID()
			got = uint64(v)
		case "count":
			var v uint32
			v, ok = ev.Count()
			got = uint64(v)
		case "stage":
			var v uint8
			v, ok = ev.Stage()
			got = uint64(v)
		}
		if !ok {
			return false
		}
		n, isNum := toUint(expected)
		if !isNum || n != got {
			return false
		}
	}
	return true
}

// assertFinalState checks a persisted row. The query is parameterised and
// identifiers are validated.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}

	for _, key := range sortedKeys(assertion.Expect) {
		expected := assertion.Expect[key]
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// buildWhereClause returns a parameterised WHERE fragment. Keys are sorted
// so the query text is deterministic.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected YAML value with a column value.
// SQLite returns integers as int64 and stores booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		switch a := actual.(type) {
		case string:
			return exp == a
		case []byte:
			return exp == string(a)
		}
		return false
	case bool:
		switch a := actual.(type) {
		case bool:
			return exp == a
		case int64:
			return exp == (a != 0)
		}
		return false
	}

	if e, ok := toInt(expected); ok {
		a, ok := toInt(actual)
		return ok && e == a
	}
	return reflect.DeepEqual(expected, actual)
}

// subsetEqual compares JSON-decoded actual values against YAML-decoded
// expected values. Maps match as subsets; numbers match by value.
func subsetEqual(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range exp {
			if !subsetEqual(act[k], v) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !subsetEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}
	return valuesEqual(actual, expected)
}

// valuesEqual compares two scalars, treating all numeric types alike.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if a, ok := toInt(actual); ok {
		e, ok := toInt(expected)
		return ok && a == e
	}
	return reflect.DeepEqual(actual, expected)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func toUint(v any) (uint64, bool) {
	n, ok := toInt(v)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AssertionContext provides database access for final_state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result and
// returns a message for each one that failed.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertStatus:
			err = assertStatus(result, assertion)
		case AssertEventContains:
			err = assertEventContains(result.Events, assertion)
		case AssertEventOrder:
			err = assertEventOrder(result.Events, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Events, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
