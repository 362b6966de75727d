package store

import "clipstream/pkg/domain"

// DefaultCountries is the reference list seeded at startup. Codes follow
// ISO 3166-1 alpha-2.
var DefaultCountries = []domain.Country{
	{Code: "AU", Name: "Australia"},
	{Code: "BR", Name: "Brazil"},
	{Code: "CA", Name: "Canada"},
	{Code: "CN", Name: "China"},
	{Code: "DE", Name: "Germany"},
	{Code: "DK", Name: "Denmark"},
	{Code: "ES", Name: "Spain"},
	{Code: "FI", Name: "Finland"},
	{Code: "FR", Name: "France"},
	{Code: "GB", Name: "United Kingdom"},
	{Code: "IN", Name: "India"},
	{Code: "IT", Name: "Italy"},
	{Code: "JP", Name: "Japan"},
	{Code: "KR", Name: "South Korea"},
	{Code: "MX", Name: "Mexico"},
	{Code: "NG", Name: "Nigeria"},
	{Code: "NL", Name: "Netherlands"},
	{Code: "NO", Name: "Norway"},
	{Code: "PL", Name: "Poland"},
	{Code: "SE", Name: "Sweden"},
	{Code: "US", Name: "United States"},
	{Code: "VN", Name: "Vietnam"},
}
