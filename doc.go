// Package tib runs esoteric-language interpreters in isolated workers.
//
// # Overview
//
// Each job runs inside an isolated context: a child process re-executing
// the tib binary, or a wazero WASM module. The host and the worker talk
// newline-delimited JSON over the worker's stdin and stdout. Output streams
// back in chunks while the interpreter runs, and each stream is capped at
// [protocol.OutLimit] bytes.
//
// A context that crashes, overflows or is cancelled is destroyed and a
// fresh one is bootstrapped in the background. A context that finished a
// job, even with an interpreter error, is reused.
//
// # Basic Usage
//
//	spawner, _ := sandbox.NewProcess()
//	sup := supervisor.New(spawner)
//	defer sup.Close()
//
//	sup.Initialize(ctx)
//	sup.WaitReady(ctx)
//
//	sup.Run(job.Request{Language: "Deadfish", Program: "iiisodso"})
//	st, _ := sup.Wait(ctx)
//	fmt.Print(st.Stdout)     // 9\n64\n
//	fmt.Println(st.Summary()) // Elapsed time: ... sec\nfinished
//
// # Packages
//
// See [language] for the interpreters, [job] for running one against a
// Writer, [protocol] for the wire format, [worker] for the dispatcher inside
// the context, [bridge] for the host end of the pipe, [sandbox] for the
// process and WASM contexts, and [supervisor] for the lifecycle.
package tib
