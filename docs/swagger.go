// Package docs Journey Tracker API.
//
// Бэкенд учёта поездок пассажиров. Устройства присылают поездки, трек,
// доверие к источникам позиции и заказы, в том числе повторно после работы офлайн.
//
// Основные возможности:
// - Идемпотентное создание поездок и заказов по идентификаторам клиента
// - Переходы статуса поездки ACTIVE -> COMPLETED / CANCELLED
// - Приём трека пачками без дублей
// - Хранение доверия к источникам позиции
//
//	Schemes: http, https
//	BasePath: /
//	Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package docs
