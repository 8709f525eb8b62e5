package handlers

// Handlers groups the HTTP endpoints for chatrooms, agent turns, tasks,
// courses, and integrations. It depends on service interfaces so transport
// concerns stay separate from business logic.
type Handlers struct {
	roomSvc        ChatroomService
	chatSvc        ChatService
	taskSvc        TaskService
	courseSvc      CourseService
	integrationSvc IntegrationService
}

// New constructs a Handlers bound to the given services.
func New(rooms ChatroomService, chat ChatService, tasks TaskService, courses CourseService, integrations IntegrationService) *Handlers {
	return &Handlers{
		roomSvc:        rooms,
		chatSvc:        chat,
		taskSvc:        tasks,
		courseSvc:      courses,
		integrationSvc: integrations,
	}
}
