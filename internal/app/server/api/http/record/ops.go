package record

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "records-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/{collection}",
		Summary:     "История записей",
		Description: "Возвращает записи коллекции по возрастанию даты получения, без содержимого.",
		Tags:        []string{"records"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) latestOp() huma.Operation {
	return huma.Operation{
		OperationID: "records-latest",
		Method:      http.MethodGet,
		Path:        "/api/v1/{collection}/latest",
		Summary:     "Последняя запись документа",
		Tags:        []string{"records"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) findOp() huma.Operation {
	return huma.Operation{
		OperationID: "records-find",
		Method:      http.MethodGet,
		Path:        "/api/v1/{collection}/{id}",
		Summary:     "Получить запись",
		Tags:        []string{"records"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) contentOp() huma.Operation {
	return huma.Operation{
		OperationID: "records-content",
		Method:      http.MethodGet,
		Path:        "/api/v1/{collection}/{id}/content",
		Summary:     "Содержимое записи",
		Description: "Отдает сохраненные байты как есть, с MIME типом записи.",
		Tags:        []string{"records"},
		Middlewares: h.middleware,
	}
}
