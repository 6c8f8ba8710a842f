// Package registry содержит реестры определений flow и прикладных
// обработчиков.
//
// FlowRegistry хранит валидированные, неизменяемые определения;
// HandlerRegistry разрешает task-шаги в прикладные функции по паре
// (service_name, handler_name).
package registry
