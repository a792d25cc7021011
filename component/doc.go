// Package component is the element factory registry. Element packages export a
// Register(*Registry) error function; componentregistry.RegisterAll wires them
// explicitly and the pipeline creates elements by component ID.
//
// Registration:
//
//	func Register(registry *component.Registry) error {
//		return registry.RegisterWithConfig(component.RegistrationConfig{
//			Name:        "video-converter",
//			Factory:     NewConverter,
//			MainType:    element.MainTypeFilter,
//			SubType:     element.RoleConverter,
//			MediaType:   capability.MediaTypeVideo,
//			Description: "Raw video pixel format converter",
//			Version:     "1.0.0",
//		})
//	}
//
// Creation and lookup:
//
//	e, err := registry.CreateComponent("video-converter", "pipeline-1", deps)
//	...
//	registry.RegisterInstance("pipeline-1", e)
//	converters := registry.GetElements("pipeline-1", capability.MediaTypeVideo, element.RoleConverter)
//	player, err := component.QueryInterface[element.Starter](registry, "pipeline-1", "render")
//
// Instances are scoped by owner tag, normally the owning pipeline's name, so
// pipelines sharing one registry never see each other's elements.
package component
