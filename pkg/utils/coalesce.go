// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

// CoalesceString returns the first non-empty value, or "" when every value
// is empty. It is used to layer configuration defaults under environment
// variables.
func CoalesceString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
