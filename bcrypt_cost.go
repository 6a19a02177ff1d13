//go:build !race

package community

func passwordHashCost() int {
	return 14
}
