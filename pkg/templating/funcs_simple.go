package templating

import "fmt"

// Arithmetic helpers accept any number a template can hold: integer literals,
// schema numbers (float64) and numeric strings. Fractions are truncated.

// number converts a template argument for the arithmetic helpers.
func number(v any) (int, error) {
	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("not a number: %v (%T)", v, v)
	}
	return n, nil
}

// operands converts both arguments of a binary helper.
func operands(a, b any) (int, int, error) {
	x, err := number(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := number(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// add returns a + b.
func add(a, b any) (int, error) {
	x, y, err := operands(a, b)
	return x + y, err
}

// sub returns a - b.
func sub(a, b any) (int, error) {
	x, y, err := operands(a, b)
	return x - y, err
}

// div returns a / b (integer division). Returns 0 if b is 0.
func div(a, b any) (int, error) {
	x, y, err := operands(a, b)
	if err != nil || y == 0 {
		return 0, err
	}
	return x / y, nil
}

// mult returns a * b.
func mult(a, b any) (int, error) {
	x, y, err := operands(a, b)
	return x * y, err
}

// maxInt returns the maximum of a and b.
func maxInt(a, b any) (int, error) {
	x, y, err := operands(a, b)
	return max(x, y), err
}

// minInt returns the minimum of a and b.
func minInt(a, b any) (int, error) {
	x, y, err := operands(a, b)
	return min(x, y), err
}

// mod returns a % b.
func mod(a, b any) (int, error) {
	x, y, err := operands(a, b)
	if err != nil || y == 0 {
		return 0, err
	}
	return x % y, nil
}

// inc returns i + 1.
func inc(i any) (int, error) {
	n, err := number(i)
	return n + 1, err
}

// dec returns i - 1.
func dec(i any) (int, error) {
	n, err := number(i)
	return n - 1, err
}
