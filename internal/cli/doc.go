// Package cli реализует инструмент командной строки Relay.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Relay API.
// Работает через HTTP, не импортирует внутренние пакеты движка.
// CLI используется для просмотра flows, запуска и отмены runs
// и доставки сигналов.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Relay API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (dataResponse, listResponse, errorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	flows, err := client.ListFlows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: relay flow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - flow: list, show, start
//   - run: list, show, steps, cancel
//   - signal: send
//
// Каждая группа создаётся через фабричную функцию (NewFlowCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
