// Package validation содержит функции валидации входных данных.
package validation

// IsValidCPF проверяет корректность формата CPF: ровно 11 цифр.
func IsValidCPF(cpf string) bool {
	return isDigits(cpf, 11)
}

func isDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
