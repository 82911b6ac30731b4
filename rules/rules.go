//go:build ruleguard

// Package gorules defines custom linter rules for playrec, run through gocritic's
// ruleguard checker.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// realtimePkgs are the packages whose code runs on, or shares data with, the audio thread.
const realtimePkgs = `playrec/internal/(stream|engine|ringbuffer|frames|audiofile)`

// EnhancedErrors reports plain fmt.Errorf in the realtime-path packages. Errors there are
// built with internal/errors so they carry a component and a category for telemetry.
func EnhancedErrors(m dsl.Matcher) {
	m.Match(`fmt.Errorf($format, $*args)`).
		Where(m.File().PkgPath.Matches(realtimePkgs) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use errors.Newf($format, $args).Component(...).Category(...).Build() instead of fmt.Errorf")

	m.Match(`errors.New($msg)`).
		Where(m.File().PkgPath.Matches(realtimePkgs) &&
			m.File().Imports("errors") &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("declare sentinels with internal/errors.NewStd($msg)")
}

// StreamTestSleep reports time.Sleep in stream tests; they wait on state with
// require.Eventually or on channels with testutil.
func StreamTestSleep(m dsl.Matcher) {
	m.Match(`time.Sleep($d)`).
		Where(m.File().PkgPath.Matches(`playrec/internal/(stream|app|diagnostics|observability)`) &&
			m.File().Name.Matches(`_test\.go$`)).
		Report("avoid time.Sleep($d) in tests; use require.Eventually or testutil.WaitForValue")
}

// WaitGroupGo detects the Add/Done pattern and suggests wg.Go (Go 1.25+).
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern").
		Suggest("$wg.Go(func() { $body })")
}

// TestingContext reports context.Background in tests where t.Context is available.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx = context.Background()`,
		`$fn(context.Background(), $*args)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of context.Background()")
}

// BenchmarkLoop suggests b.Loop over b.N loops (Go 1.24+).
func BenchmarkLoop(m dsl.Matcher) {
	m.Match(`for range $b.N { $*body }`).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... } instead of for range $b.N").
		Suggest("for $b.Loop() { $body }")
}
