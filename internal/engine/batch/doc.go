// Package batch coordinates a fixed-size batch of generation jobs.
//
// A Controller owns every piece of mutable batch state on a single event-loop
// goroutine: the generation counter, the Registry of job slots, the batch
// phase and completion detection. Jobs run on their own goroutines and talk
// to the loop only through events tagged with their index and generation;
// launcher timers only post start requests to the loop. Key properties:
//   - Starts are staggered by a fixed interval, in index order
//   - Events from a superseded generation are discarded
//   - Each slot accepts exactly one terminal outcome
//   - OnBatchComplete fires exactly once, after every slot is terminal
//
// Starting a new batch while one is active supersedes it: pending starts are
// dropped, running jobs are asked to cancel and awaited for a bounded time,
// and jobs that do not stop in time are abandoned. A superseded batch never
// reports completion.
package batch
