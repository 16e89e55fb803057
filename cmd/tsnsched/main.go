// Command tsnsched computes routes and cyclic queue assignments for
// streams of a CSQF or Multi-CQF time-sensitive network.
package main

func main() {
	Execute()
}
