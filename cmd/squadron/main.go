// Command squadron runs a team of AI coding specialists on a task.
package main

func main() {
	Execute()
}
