// Package engine содержит чистое ядро выполнения flow.
//
// Включает:
//   - validate.go — валидация FlowDefinition при регистрации
//   - dag.go      — построение и обход DAG (directed acyclic graph)
//   - template.go — разрешение плейсхолдеров {{param}} и {{step.field}}
//
// Engine отвечает за понимание структуры flow: порядок выполнения
// шагов на основе зависимостей, детерминированное вычисление готовых
// шагов и подстановку данных в input шагов. Пакет не имеет побочных
// эффектов и не знает про транспорт, персистентность и обработчики.
package engine
