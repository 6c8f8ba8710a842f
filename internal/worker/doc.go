// Package worker связывает движок с координатором и содержит
// встроенные прикладные обработчики и определения flow.
//
// Worker потребляет команды (flow.start, run.cancel) и события
// (event.signal, event.timer), транслирует их в вызовы движка и
// публикует run.completed для терминальных runs.
package worker
