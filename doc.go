/*
Package domain allows to compose real-time applications out of domains.

Concept

A domain is a unit of work with its own lifecycle. Every domain is
initialized and cleaned up, and there are two kinds of execution:

    Synchronous - ticked inline by its parent with elapsed time dt;
    Asynchronous - owns its goroutine or device callback, started and stopped.

Domains form a tree: every domain can hold synchronous sub-domains that
are executed before (Pre) or after (Post) its own work. Audio domain ticks
its tree once per hardware block on the callback goroutine, graphics
domain once per frame.

Lifecycle

Node implements the tree and guarded transitions, concrete domains embed
it and call its With methods:

    Created -> Initialized -> Running <-> Stopped -> CleanedUp

Transitions from wrong states return ErrInvalidState. Errors of siblings
are aggregated, every sibling still gets its call.

Packages

    audio    - audio domain, devices and processors;
    output   - output stage with gains, bass management and meters;
    graphics - frame loop with navigation and windows;
    network  - OSC control listener and parameter server;
    vr       - tracked pose handed to the frame loop;
    record   - capture of the audio output into files;
    sample   - playback of wav clips;
    app      - composite application that runs all of the above.

Data is exchanged between goroutines of different domains with
doublebuffer.Buffer, parameter changes for the real-time goroutine are
scheduled with param.Queue.
*/
package domain
