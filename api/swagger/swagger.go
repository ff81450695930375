package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Little Oaks Admissions API",
        "description": "Admissions pipeline: inquiries, waitlist, tours, offers and enrollment conversion",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Public", "description": "Unauthenticated family endpoints"},
        {"name": "Authentication", "description": "Staff login and session management"},
        {"name": "Waitlist", "description": "Waitlist entries and stage transitions"},
        {"name": "Tours", "description": "Tour slots, bookings and attendance"},
        {"name": "Offers", "description": "Offer lifecycle and conversion"},
        {"name": "Analytics", "description": "Pipeline funnel reporting"}
    ],
    "paths": {
        "/public/inquiries": {
            "post": {
                "tags": ["Public"],
                "summary": "Submit an admissions inquiry",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitInquiryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Open journey already exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/inquiries/status": {
            "get": {
                "tags": ["Public"],
                "summary": "Check the status of an admissions journey",
                "parameters": [
                    {"name": "parent_email", "in": "query", "type": "string", "required": true},
                    {"name": "child_first_name", "in": "query", "type": "string", "required": true},
                    {"name": "child_last_name", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No journey found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/tour-slots": {
            "get": {
                "tags": ["Public"],
                "summary": "List bookable tour slots",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/tour-bookings": {
            "post": {
                "tags": ["Public"],
                "summary": "Book a tour for an existing journey",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PublicBookingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot fully booked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate staff user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlist": {
            "get": {
                "tags": ["Waitlist"],
                "summary": "List waitlist entries",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "stage", "in": "query", "type": "string"},
                    {"name": "program", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Waitlist"],
                "summary": "Create an inquiry on a family's behalf",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitInquiryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlist/{id}": {
            "get": {
                "tags": ["Waitlist"],
                "summary": "Get an entry with its stage history",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Waitlist"],
                "summary": "Update entry metadata",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateEntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Waitlist"],
                "summary": "Soft delete an entry",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/waitlist/{id}/transition": {
            "post": {
                "tags": ["Waitlist"],
                "summary": "Move an entry along the stage graph",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlist/{id}/offer": {
            "post": {
                "tags": ["Offers"],
                "summary": "Extend an enrollment offer",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MakeOfferRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlist/{id}/offer/accept": {
            "post": {
                "tags": ["Offers"],
                "summary": "Accept an offer and convert to an application",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Offer expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlist/{id}/offer/decline": {
            "post": {
                "tags": ["Offers"],
                "summary": "Decline an offer",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tour-slots": {
            "get": {
                "tags": ["Tours"],
                "summary": "List tour slots with booking counts",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Tours"],
                "summary": "Create a tour slot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tour-bookings": {
            "post": {
                "tags": ["Tours"],
                "summary": "Book a waitlist entry onto a tour slot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BookTourRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot fully booked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/pipeline": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Admissions funnel report",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SubmitInquiryRequest": {
            "type": "object",
            "properties": {
                "child_first_name": {"type": "string"},
                "child_last_name": {"type": "string"},
                "child_dob": {"type": "string", "format": "date-time"},
                "requested_program": {"type": "string"},
                "requested_start_date": {"type": "string", "format": "date-time"},
                "parent_name": {"type": "string"},
                "parent_email": {"type": "string"},
                "parent_phone": {"type": "string"},
                "referral_source": {"type": "string"},
                "notes": {"type": "string"}
            },
            "required": ["child_first_name", "child_last_name", "requested_program", "parent_name", "parent_email"]
        },
        "PublicBookingRequest": {
            "type": "object",
            "properties": {
                "parent_email": {"type": "string"},
                "child_first_name": {"type": "string"},
                "child_last_name": {"type": "string"},
                "slot_id": {"type": "string"}
            },
            "required": ["parent_email", "child_first_name", "child_last_name", "slot_id"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "UpdateEntryRequest": {
            "type": "object",
            "properties": {
                "priority": {"type": "integer"},
                "child_first_name": {"type": "string"},
                "child_last_name": {"type": "string"},
                "requested_program": {"type": "string"},
                "parent_name": {"type": "string"},
                "parent_email": {"type": "string"},
                "parent_phone": {"type": "string"},
                "referral_source": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "TransitionRequest": {
            "type": "object",
            "properties": {
                "to": {"type": "string"},
                "note": {"type": "string"}
            },
            "required": ["to"]
        },
        "MakeOfferRequest": {
            "type": "object",
            "properties": {
                "program": {"type": "string"},
                "start_date": {"type": "string", "format": "date-time"},
                "expires_at": {"type": "string", "format": "date-time"},
                "note": {"type": "string"}
            },
            "required": ["program"]
        },
        "CreateSlotRequest": {
            "type": "object",
            "properties": {
                "slot_date": {"type": "string", "format": "date-time"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "max_families": {"type": "integer"},
                "guide_name": {"type": "string"},
                "location": {"type": "string"}
            },
            "required": ["slot_date", "start_time", "end_time"]
        },
        "BookTourRequest": {
            "type": "object",
            "properties": {
                "entry_id": {"type": "string"},
                "slot_id": {"type": "string"}
            },
            "required": ["entry_id", "slot_id"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
