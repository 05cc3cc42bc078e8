package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var codeSpace = big.NewInt(1000000)

// GenerateCode devuelve un codigo de 6 digitos uniforme en 000000-999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
