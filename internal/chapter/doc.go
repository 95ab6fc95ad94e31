// Package chapter shapes decrypted chapter text into the fields stored in a
// bundle: a title line, the body, its word count, and a URL slug.
package chapter
