// Command webcloner renders a public web page, extracts its design and
// generates a new HTML document in the same visual style.
package main

func main() {
	Execute()
}
