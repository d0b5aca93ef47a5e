// Package pipeline runs a crawl as a sequence of steps.
//
// A run is three stages. A preflight pipeline checks that the upstream
// proxy and the proxy base answer. A BatchProcessor then runs one pipeline
// per seed shard, each with its own pair of browser sessions, bounded by
// errgroup.SetLimit. Finally the merged report goes through a finishing
// pipeline that saves it to the run database and writes the report files.
//
// Design decision: Every step receives the *model.RunReport of its stage and
// records per-seed failures there; a step returns an error only when the
// stage itself cannot continue.
package pipeline
