/*
Package pipe is a dataflow engine. Pipeline is a graph of stages, every
stage runs its processor in a separate goroutine and communicates with
other stages through bounded channels.

Stages are connected with Connect. Mirrored connection gets its own
channel and receives every emitted item. Non-mirrored connections share a
single channel, so consumers compete for items:

	source.Connect(detector, false)
	detector.Connect(recorder, true)
	detector.Connect(display, true)

Shutdown propagates downstream: when stage exits, it closes its outputs
and consumers exit after they drain their inputs. The first failed stage
cancels the whole pipeline.
*/
package pipe
