package storage

import "errors"

// Ошибки хранилищ чата. Операции оборачивают их именем операции ("rooms.Create: %w"),
// проверять следует через errors.Is.
var (
	// ErrNotFound: комната или сообщение, без которых операция не имеет смысла, не существует.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument: некорректный ввод (пустой список участников, event-чат без party id и т.п.).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyExists: создание нарушило бы уникальность комнаты (event-чат партии или личный чат пары).
	ErrAlreadyExists = errors.New("already exists")
)
