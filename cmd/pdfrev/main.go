// Package main provides the pdfrev command, which inspects, saves, repairs
// and validates the revisions of PDF documents.
package main

func main() {
	Execute()
}
