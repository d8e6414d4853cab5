package validation

// IsValidBarcode проверяет корректность формата штрихкода: ровно 13 цифр.
func IsValidBarcode(barcode string) bool {
	return isDigits(barcode, 13)
}
