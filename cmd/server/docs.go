// Package main Payment Status Service API
//
//	@title						Payment Status Service API
//	@version					1.0
//	@description				Receives payment status notifications from the payment gateway and applies them to orders.
//
//	@contact.name				UniEdit Support
//	@contact.url				https://uniedit.io/support
//	@contact.email				support@uniedit.io
//
//	@license.name				Proprietary
//	@license.url				https://uniedit.io/license
//
//	@host						localhost:8080
//	@BasePath					/api
//
//	@securityDefinitions.apikey	S2SApiKey
//	@in							header
//	@name						x-api-key
//	@description				Server-to-server API key. Requests also carry x-signature (hex HMAC-SHA256 of METHOD + path + timestamp + nonce + body), x-timestamp (unix seconds) and x-nonce.
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"
//
//	@tag.name					Webhook
//	@tag.description			Payment gateway notifications
//
//	@tag.name					Order
//	@tag.description			Order status lookup
package main
