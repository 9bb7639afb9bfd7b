// Package framework contains the infrastructure shared by all parts of the prplMesh flows test
// harness that is not specific to devices or commands: the Logger abstraction and its
// implementations. Reusable helpers live in the subpackages helpers and opt.
//
// The general model is:
//
// 1. A test system (package testsystem) knows how to reach each device of a deployment: its
// command endpoint address and port, its configuration, and its logs.
//
// 2. Commands are sent over short-lived command socket connections (package ucc), one
// connection per command.
//
// 3. Flow tests (package flowtest) send role-specific commands and then search the device logs
// for evidence of the expected behavior.
package framework
