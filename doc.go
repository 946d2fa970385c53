/*
Package bci allows to build and execute real-time EEG processing pipelines.

Concept

This package offers an opinionated perspective to biosignal processing.
Data flows from a device through a graph of stages:

    Source - a device producer pulling samples from an adapter;
    Stages - filters, artifact detectors and predictors;
    Sinks - emitters handing results to application callbacks.

Every stage runs in its own goroutine and stages communicate only through
bounded channels. A full channel blocks its producer, so a slow stage
slows down the whole graph instead of dropping samples.

Items

The engine never inspects what flows through it. In this domain the items
are Event values: a timestamped multi-channel sample with a DataType tag,
and TrainedEvent values emitted by predictors.

Artifacts

The artifact package implements a tournament of autoregressive models
that decides sample by sample whether a value is an outlier. Competitors
which model the signal badly lose merits and are refit from the most
recent samples, so the ensemble follows the signal when it changes.

Assembly

Pipelines are usually described in a YAML or JSON file which lists stages
by type name and the connections between them. See the assembly and
session packages.
*/
package bci
