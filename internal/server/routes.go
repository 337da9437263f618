package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures the v2 API surface (spec §6).
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/channels", func(r chi.Router) {
		r.Post("/", s.createChannel)
		r.Get("/", s.listChannels)

		r.Route("/{channelID}", func(r chi.Router) {
			r.Get("/", s.getChannel)
			r.Delete("/", s.deleteChannel)

			r.Post("/members", s.addMember)
			r.Delete("/members/{entityID}", s.removeMember)

			r.Post("/messages", s.postMessage)
			r.Get("/messages", s.listMessages)
		})
	})

	r.Route("/agents", func(r chi.Router) {
		r.Post("/", s.spawnAgent)
		r.Get("/", s.listAgents)

		r.Route("/{agentID}", func(r chi.Router) {
			r.Get("/", s.getAgent)
			r.Delete("/", s.despawnAgent)
			r.Put("/persona", s.updatePersona)
			r.Post("/emotional-state", s.overrideEmotionalState)
		})
	})

	r.Get("/events", s.pushEvents)
}
