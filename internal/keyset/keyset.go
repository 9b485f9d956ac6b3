// Package keyset compara conjuntos de claves públicas sin depender del orden.
//
// La igualdad es de multiconjunto: cada clave (byte a byte) debe aparecer la misma
// cantidad de veces en ambos lados. Una clave duplicada en un solo lado hace que
// los conjuntos sean distintos.
package keyset

import (
	"sort"

	"github.com/dropDatabas3/hellocards/internal/crypto"
)

func counts(keys []crypto.PublicKey) map[string]int {
	m := make(map[string]int, len(keys))
	for _, k := range keys {
		m[string(k)]++
	}
	return m
}

// Equal reporta si a y b contienen las mismas claves con la misma multiplicidad.
func Equal(a, b []crypto.PublicKey) bool {
	if len(a) != len(b) {
		return false
	}
	m := counts(a)
	for _, k := range b {
		n := m[string(k)]
		if n == 0 {
			return false
		}
		m[string(k)] = n - 1
	}
	return true
}

// Diff devuelve las claves de a que faltan en b y las de b que faltan en a,
// respetando multiplicidad.
func Diff(a, b []crypto.PublicKey) (onlyA, onlyB []crypto.PublicKey) {
	m := counts(b)
	for _, k := range a {
		if m[string(k)] > 0 {
			m[string(k)]--
			continue
		}
		onlyA = append(onlyA, k.Clone())
	}
	m = counts(a)
	for _, k := range b {
		if m[string(k)] > 0 {
			m[string(k)]--
			continue
		}
		onlyB = append(onlyB, k.Clone())
	}
	return onlyA, onlyB
}

// Fingerprints devuelve los IDs de las claves ordenados.
func Fingerprints(keys []crypto.PublicKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.ID()
	}
	sort.Strings(out)
	return out
}
