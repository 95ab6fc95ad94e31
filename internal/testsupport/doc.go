// Package testsupport holds fixtures shared by package tests: temp-dir
// configs, an opened catalog, a dictionary codec, and FakeRemote, an
// httptest implementation of the chapter API that serves sealed chapters.
package testsupport
